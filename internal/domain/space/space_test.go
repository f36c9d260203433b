package space_test

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/Strob0t/spacegate/internal/domain"
	"github.com/Strob0t/spacegate/internal/domain/space"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"app.example.com", "app.example.com"},
		{"App.Example.COM", "app.example.com"},
		{"app.example.com:8443", "app.example.com"},
		{"app.example.com.", "app.example.com"},
		{"  localhost:3000 ", "localhost"},
		{"[::1]:3000", "::1"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := space.NormalizeDomain(tt.input); got != tt.want {
				t.Errorf("NormalizeDomain(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeDedupes(t *testing.T) {
	s := &space.Space{
		Domains:        []string{"A.example.com", "a.example.com:80", ""},
		AdminUsernames: []string{" Alice ", "alice", "BOB"},
		Features:       []string{"Reports", "reports"},
		Creator:        " Carol@Example.com ",
	}
	s.Normalize()

	if !slices.Equal(s.Domains, []string{"a.example.com"}) {
		t.Errorf("domains = %v", s.Domains)
	}
	if !slices.Equal(s.AdminUsernames, []string{"alice", "bob"}) {
		t.Errorf("admins = %v", s.AdminUsernames)
	}
	if !slices.Equal(s.Features, []string{"reports"}) {
		t.Errorf("features = %v", s.Features)
	}
	if s.Creator != "carol@example.com" {
		t.Errorf("creator = %q", s.Creator)
	}
}

func TestAddRemoveAdmin(t *testing.T) {
	s := &space.Space{}

	if !s.AddAdmin("Alice") {
		t.Fatal("expected first add to change the list")
	}
	if s.AddAdmin("ALICE") {
		t.Fatal("expected case-insensitive duplicate to be ignored")
	}
	if s.AddAdmin("   ") {
		t.Fatal("expected blank username to be ignored")
	}
	if !s.RemoveAdmin("alice") {
		t.Fatal("expected remove to change the list")
	}
	if s.RemoveAdmin("alice") {
		t.Fatal("expected second remove to be a no-op")
	}
	if len(s.AdminUsernames) != 0 {
		t.Fatalf("expected empty admin list, got %v", s.AdminUsernames)
	}
}

func TestHasFeature(t *testing.T) {
	s := &space.Space{Features: []string{"tidbits"}}
	if !s.HasFeature(" TidBits ") {
		t.Error("expected feature match")
	}
	if s.HasFeature("courses") {
		t.Error("unexpected feature match")
	}
}

func TestCreateRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     space.CreateRequest
		wantErr bool
	}{
		{"valid", space.CreateRequest{Name: "Academy", Creator: "alice", Domains: []string{"academy.example.com"}}, false},
		{"missing name", space.CreateRequest{Name: " ", Creator: "alice"}, true},
		{"missing creator", space.CreateRequest{Name: "Academy"}, true},
		{"bad domain", space.CreateRequest{Name: "Academy", Creator: "a", Domains: []string{"bad_domain!"}}, true},
		{"config not object", space.CreateRequest{Name: "Academy", Creator: "a", Config: json.RawMessage(`[1,2]`)}, true},
		{"config object", space.CreateRequest{Name: "Academy", Creator: "a", Config: json.RawMessage(`{"theme":"dark"}`)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if !errors.Is(err, domain.ErrValidation) {
					t.Fatalf("expected ErrValidation, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestUpdateRequestApply(t *testing.T) {
	name := "  Renamed "
	domains := []string{"New.Example.com"}
	req := space.UpdateRequest{Name: &name, Domains: &domains}
	if err := req.Validate(); err != nil {
		t.Fatal(err)
	}

	s := &space.Space{Name: "Old", Domains: []string{"old.example.com"}, Features: []string{"x"}}
	req.Apply(s)

	if s.Name != "Renamed" {
		t.Errorf("name = %q", s.Name)
	}
	if !slices.Equal(s.Domains, []string{"new.example.com"}) {
		t.Errorf("domains = %v", s.Domains)
	}
	if !slices.Equal(s.Features, []string{"x"}) {
		t.Errorf("features should be unchanged, got %v", s.Features)
	}
}

func TestUpdateRequestConfig(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "absent keeps config", body: `{"name":"X"}`, want: `{"theme":"dark"}`},
		{name: "object replaces config", body: `{"config":{"theme":"light"}}`, want: `{"theme":"light"}`},
		{name: "null clears config", body: `{"config":null}`, want: ""},
		{name: "padded null clears config", body: `{"config": null }`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req space.UpdateRequest
			if err := json.Unmarshal([]byte(tt.body), &req); err != nil {
				t.Fatal(err)
			}
			if err := req.Validate(); err != nil {
				t.Fatalf("validate: %v", err)
			}
			s := &space.Space{Name: "Old", Config: json.RawMessage(`{"theme":"dark"}`)}
			req.Apply(s)
			if string(s.Config) != tt.want {
				t.Errorf("config = %q, want %q", s.Config, tt.want)
			}
		})
	}

	var req space.UpdateRequest
	if err := json.Unmarshal([]byte(`{"config":[1,2]}`), &req); err != nil {
		t.Fatal(err)
	}
	if err := req.Validate(); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("array config: err = %v, want ErrValidation", err)
	}
}

func TestNormalizeDropsNullConfig(t *testing.T) {
	s := &space.Space{ID: "t1", Config: json.RawMessage("null")}
	s.Normalize()
	if s.Config != nil {
		t.Errorf("config = %q, want nil", s.Config)
	}
}
