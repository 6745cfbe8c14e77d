package core

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailMessage_Render(t *testing.T) {
	msg := &EmailMessage{
		TemplateName: "password_reset",
		TemplateData: map[string]interface{}{
			"OrganizationName": "Formations <Durand>",
			"ResetURL":         "https://app.feeded.test/password-reset/uid/token",
		},
	}
	require.NoError(t, msg.Render())
	assert.Contains(t, msg.TextContent, "https://app.feeded.test/password-reset/uid/token")
	assert.Contains(t, msg.TextContent, "Formations <Durand> via FeedEd")
	assert.Contains(t, msg.HTMLContent, "Formations &lt;Durand&gt;")

	kept := &EmailMessage{TemplateName: "password_reset", TextContent: "custom", TemplateData: msg.TemplateData}
	require.NoError(t, kept.Render())
	assert.Equal(t, "custom", kept.TextContent)
	assert.NotEmpty(t, kept.HTMLContent)

	missing := &EmailMessage{TemplateName: "password_reset", TemplateData: map[string]interface{}{}}
	assert.Error(t, missing.Render())

	assert.Error(t, (&EmailMessage{TemplateName: "unknown"}).Render())
	assert.NoError(t, (&EmailMessage{}).Render())
}

func TestPagination_Bounds(t *testing.T) {
	tests := []struct {
		name       string
		page       Pagination
		n          int
		start, end int
	}{
		{name: "all", page: Pagination{}, n: 7, start: 0, end: 7},
		{name: "first", page: Pagination{Page: 1, PageSize: 3}, n: 7, start: 0, end: 3},
		{name: "zero page is first", page: Pagination{PageSize: 3}, n: 7, start: 0, end: 3},
		{name: "last partial", page: Pagination{Page: 3, PageSize: 3}, n: 7, start: 6, end: 7},
		{name: "past the end", page: Pagination{Page: 4, PageSize: 3}, n: 7, start: 7, end: 7},
		{name: "empty", page: Pagination{Page: 1, PageSize: 3}, n: 0, start: 0, end: 0},
		{name: "huge page", page: Pagination{Page: math.MaxInt64, PageSize: 2}, n: 5, start: 5, end: 5},
		{name: "huge page size", page: Pagination{Page: 2, PageSize: math.MaxInt64}, n: 5, start: 5, end: 5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			start, end := tc.page.Bounds(tc.n)
			assert.Equal(t, tc.start, start)
			assert.Equal(t, tc.end, end)
		})
	}
}

func TestValidateStruct(t *testing.T) {
	type payload struct {
		Name  string `json:"name" validate:"required,notblank"`
		Email string `json:"email,omitempty" validate:"required_without=Name"`
	}

	assert.NoError(t, ValidateStruct(payload{Name: "Acme"}))

	err := ValidateStruct(payload{Name: "   "})
	require.IsType(t, &ValidationError{}, err)
	assert.Equal(t, []FieldError{{Field: "name", Error: "this field cannot be blank"}}, err.(*ValidationError).Fields)

	err = ValidateStruct(payload{})
	require.IsType(t, &ValidationError{}, err)
	assert.Equal(t, []FieldError{
		{Field: "name", Error: "this field is required"},
		{Field: "email", Error: "this field is required"},
	}, err.(*ValidationError).Fields)
	assert.Equal(t, "name: this field is required", err.Error())
}

func TestErrors(t *testing.T) {
	nf := NewNotFoundError("program")
	assert.True(t, IsNotFound(nf))
	assert.Equal(t, "program not found", nf.Error())
	assert.False(t, IsNotFound(NewConflictError("busy")))
	assert.True(t, IsConflict(NewConflictError("busy")))
	assert.True(t, IsShutdown(NewShutdownError("stop")))
}

func TestCleanString(t *testing.T) {
	assert.Equal(t, "Acme", CleanString("  Acme\n"))
	assert.Equal(t, "acme", CleanString(" ACME ", true))
	assert.Len(t, NewID(), 32)
	assert.NotContains(t, NewID(), "-")
}
