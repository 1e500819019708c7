package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/swcache/apps/api/echo"
)

var apiRoles = echoapi.AllRoles

// issueToken prints a signed API token for `subject`.
func (cli *commandLine) issueToken(subject string, roles []string) error {
	granted := make([]string, 0, len(roles))
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if !strings.HasSuffix(role, ":") {
			role += ":"
		}
		if !validRole(role) {
			return errors.Errorf("unknown role %q", role)
		}
		granted = append(granted, role)
	}

	claims := echoapi.NewClaims(cli.conf, subject, granted...)
	token, err := echoapi.GenerateToken(claims, cli.conf.SecretKey)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	fmt.Fprintln(cli.out, token)
	return nil
}

func validRole(role string) bool {
	for _, r := range apiRoles {
		if r == role {
			return true
		}
	}
	return false
}
