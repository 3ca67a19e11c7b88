package commands

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"studycal/internal/bucket"
	"studycal/internal/dashboard"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6b7280"))
	codeStyle   = lipgloss.NewStyle().Bold(true).Width(12)
)

var coursesCmd = &cobra.Command{
	Use:   "courses",
	Short: "List a user's courses with their colors and assignment counts",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		user, _ := cmd.Flags().GetString("user")
		snap, err := a.dash.Load(cmd.Context(), user)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(snap.Courses) == 0 {
			fmt.Fprintln(out, "No courses found. Connect a Canvas feed with 'studycal connect canvas'.")
			return nil
		}
		fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d course(s)", len(snap.Courses))))
		for _, c := range snap.Courses {
			swatch := lipgloss.NewStyle().Background(lipgloss.Color(c.Color)).Render("    ")
			fmt.Fprintf(out, "%s %s %-7s %s  %d/%d done, %d upcoming %s\n",
				swatch,
				codeStyle.Render(c.Code),
				c.Term,
				dimStyle.Render(c.Color),
				c.CompletedAssignments,
				c.TotalAssignments,
				c.UpcomingAssignments,
				dimStyle.Render(string(c.Icon)),
			)
		}
		return nil
	}),
}

var agendaCmd = &cobra.Command{
	Use:   "agenda",
	Short: "Show one day's events and tasks in the user's timezone",
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		user, _ := cmd.Flags().GetString("user")
		raw, _ := cmd.Flags().GetString("date")

		var day bucket.Date
		if raw != "" {
			d, err := bucket.ParseDate(raw)
			if err != nil {
				return err
			}
			day = d
		}
		cal, err := a.dash.Calendar(cmd.Context(), user, dashboard.ViewDay, day)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		d := cal.Days[0].Date
		title := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("Monday, Jan 2 2006")
		fmt.Fprintln(out, headerStyle.Render(title)+" "+dimStyle.Render(cal.Timezone))
		if len(cal.Days[0].Items) == 0 {
			fmt.Fprintln(out, dimStyle.Render("  nothing scheduled"))
			return nil
		}
		for _, it := range cal.Days[0].Items {
			mark := " "
			if it.Completed {
				mark = "x"
			}
			fmt.Fprintf(out, "  %8s [%s] %-5s %s\n", it.Label, mark, it.Kind, it.Title)
		}
		return nil
	}),
}

func init() {
	coursesCmd.Flags().String("user", "", "User ID")
	_ = coursesCmd.MarkFlagRequired("user")

	agendaCmd.Flags().String("user", "", "User ID")
	agendaCmd.Flags().String("date", "", "Day to show as YYYY-MM-DD (default: today)")
	_ = agendaCmd.MarkFlagRequired("user")
}
