package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tonimelisma/davharness/internal/dav"
)

// adminActor is the actor name bound to the [admin] section.
const adminActor = "admin"

// ErrUnknownActor is returned for an actor with no configured account.
var ErrUnknownActor = errors.New("config: unknown actor")

// Credentials returns the basic-auth credentials of actor. "admin" maps
// to the [admin] section; any other name must have a [users.<name>] table.
func (c *Config) Credentials(actor string) (dav.Credentials, error) {
	if actor == adminActor {
		return dav.Credentials{Username: c.Admin.Username, Password: c.Admin.Password}, nil
	}

	acct, ok := c.Users[actor]
	if !ok {
		return dav.Credentials{}, fmt.Errorf("%w: %q", ErrUnknownActor, actor)
	}

	username := acct.Username
	if username == "" {
		username = actor
	}

	return dav.Credentials{Username: username, Password: acct.Password}, nil
}

// Actors returns the configured actor names, admin first, the rest sorted.
func (c *Config) Actors() []string {
	names := make([]string, 0, len(c.Users)+1)
	for name := range c.Users {
		names = append(names, name)
	}

	sort.Strings(names)

	return append([]string{adminActor}, names...)
}
