package domain_test

import (
	"errors"
	"testing"

	"github.com/go-test/deep"

	"github.com/mkrupp/tokenauth/internal/domain"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		want    domain.Role
		wantErr error
	}{
		{name: "canonical admin", in: "ADMIN", want: domain.RoleAdmin},
		{name: "lower case client", in: "client", want: domain.RoleClient},
		{name: "legacy prefix", in: "ROLE_ADMIN", want: domain.RoleAdmin},
		{name: "legacy prefix mixed case", in: "role_Client", want: domain.RoleClient},
		{name: "unknown role", in: "ROOT", wantErr: domain.ErrInvalidInput},
		{name: "empty", in: "", wantErr: domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := domain.ParseRole(tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseRole(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseRole(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestRoleSet(t *testing.T) {
	t.Parallel()

	set := domain.NewRoleSet(domain.RoleClient, domain.RoleAdmin, domain.RoleClient)

	if len(set) != 2 {
		t.Fatalf("duplicates not collapsed: %v", set)
	}

	if diff := deep.Equal(set.Slice(), []domain.Role{domain.RoleAdmin, domain.RoleClient}); diff != nil {
		t.Errorf("Slice() not sorted: %v", diff)
	}

	if !set.Equal(domain.NewRoleSet(domain.RoleAdmin, domain.RoleClient)) {
		t.Error("Equal() must ignore order")
	}

	if set.Equal(domain.NewRoleSet(domain.RoleAdmin)) {
		t.Error("Equal() with subset must be false")
	}

	if !domain.NewRoleSet(domain.RoleClient).Intersects(domain.NewRoleSet(domain.RoleAdmin, domain.RoleClient)) {
		t.Error("Intersects() must find the shared role")
	}

	if domain.NewRoleSet().Intersects(domain.NewRoleSet(domain.RoleAdmin)) {
		t.Error("empty set must not intersect")
	}

	if got := domain.NewRoleSet().Slice(); got == nil || len(got) != 0 {
		t.Errorf("Slice() of empty set = %#v, want empty non-nil", got)
	}
}

func TestParseRoleSet(t *testing.T) {
	t.Parallel()

	set, err := domain.ParseRoleSet([]string{"ROLE_CLIENT", "client"})
	if err != nil {
		t.Fatalf("ParseRoleSet() error = %v", err)
	}

	if !set.Equal(domain.NewRoleSet(domain.RoleClient)) {
		t.Errorf("ParseRoleSet() = %v", set)
	}

	if _, err := domain.ParseRoleSet([]string{"CLIENT", "nope"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("ParseRoleSet() error = %v, want ErrInvalidInput", err)
	}
}
