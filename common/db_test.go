package common

import (
	"testing"
)

func TestMysqlDSN(t *testing.T) {
	got := mysqlDSN(DBParams{Host: "db", Port: "3306", User: "server", Password: "secret", Name: "trashdrop"})
	want := "server:secret@tcp(db:3306)/trashdrop?parseTime=true"
	if got != want {
		t.Errorf("mysqlDSN: expected %q, got %q", want, got)
	}
}

func TestEnvInt(t *testing.T) {
	testCases := []struct {
		primary, secondary string
		expected           int
	}{
		{"", "", 25},
		{"", "7", 7},
		{"3", "7", 3},
		{"-1", "", 25},
		{"x", "4", 4},
	}
	for _, tc := range testCases {
		t.Setenv("TEST_PRIMARY", tc.primary)
		t.Setenv("TEST_SECONDARY", tc.secondary)
		if got := envInt([]string{"TEST_PRIMARY", "TEST_SECONDARY"}, 25); got != tc.expected {
			t.Errorf("envInt(%q, %q): expected %d, got %d", tc.primary, tc.secondary, tc.expected, got)
		}
	}
}
