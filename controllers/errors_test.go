package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"gotest.tools/v3/assert"

	"playforge/gateway"
	"playforge/services"
)

func TestHandleErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &services.ValidationError{Field: "name", Message: "name cannot be empty"}, http.StatusBadRequest},
		{"partial", &services.PartialFailure{Entity: "poll", Step: "option 1 of 2", Compensated: true, Err: errors.New("x")}, http.StatusInternalServerError},
		{"not found", &gateway.RemoteError{Op: "get", Table: "pages", Message: "p not found", Err: gateway.ErrNotFound}, http.StatusNotFound},
		{"wrapped not found", fmt.Errorf("load: %w", &gateway.RemoteError{Op: "get", Table: "pages", Err: gateway.ErrNotFound}), http.StatusNotFound},
		{"remote", &gateway.RemoteError{Op: "list", Table: "polls", Message: "connection refused"}, http.StatusBadGateway},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			handleError(c, tc.err, "Failed")
			assert.Equal(t, w.Code, tc.want)
		})
	}
}

func TestHandleErrorPartialFailureBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	handleError(c, &services.PartialFailure{Entity: "poll", ID: "p1", Step: "option 2 of 3", Err: errors.New("x")}, "Failed")

	var body struct {
		Success bool `json:"success"`
		Error   struct {
			Step        string `json:"step"`
			Compensated bool   `json:"compensated"`
		} `json:"error"`
	}
	assert.NilError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Assert(t, !body.Success)
	assert.Equal(t, body.Error.Step, "option 2 of 3")
	assert.Assert(t, !body.Error.Compensated)
}
