package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusAndMessageFollowKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
		msg    string
	}{
		{Validation("name is required"), http.StatusBadRequest, "name is required"},
		{Auth("invalid email or password"), http.StatusUnauthorized, "invalid email or password"},
		{Forbidden("admin only"), http.StatusForbidden, "admin only"},
		{NotFound("appointment not found"), http.StatusNotFound, "appointment not found"},
		{Integration("payment failed", errors.New("card declined")), http.StatusBadGateway, "payment failed"},
		{Unexpected("insert appointment", errors.New("conn reset")), http.StatusInternalServerError, "internal server error"},
		{errors.New("plain"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.status, HTTPStatus(tc.err), tc.err.Error())
		assert.Equal(t, tc.msg, Message(tc.err), tc.err.Error())
	}
}

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("smtp down")
	err := fmt.Errorf("send confirmation: %w", Integration("email failed", cause))

	assert.True(t, Is(err, KindIntegration))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "integration", KindOf(err).String())
}
