package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	appLog "studycal/internal/log"
	"studycal/internal/model"
	"studycal/internal/timestamp"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// newValidator registers the custom tags request bodies use:
// "timestamp" (a value the store can parse), "icon" (a known IconID) and
// "taskstatus".
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("timestamp", func(fl validator.FieldLevel) bool {
		_, err := timestamp.Parse(fl.Field().String(), time.UTC)
		return err == nil
	})
	_ = v.RegisterValidation("icon", func(fl validator.FieldLevel) bool {
		return model.IconID(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("taskstatus", func(fl validator.FieldLevel) bool {
		return model.TaskStatus(fl.Field().String()).Valid()
	})
	return v
}

// decode reads a JSON body into dst and validates it. Failures are written
// to w and reported as false.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
