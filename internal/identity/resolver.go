package identity

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
)

var ErrUserNotFound = errors.New("user not found")

var usernameRe = regexp.MustCompile(`^[a-z_][a-z0-9_-]{0,31}$`)

// ValidUsername enforces Ubuntu-style username requirements:
// lowercase letters/digits/underscore/dash, starting with a letter or underscore.
func ValidUsername(u string) bool {
	return usernameRe.MatchString(u)
}

// User is the resolved identity of one session's owner.
type User struct {
	Name  string
	UID   int
	GID   int
	Home  string
	Shell string
}

type Resolver struct {
	PasswdPath string
	GroupPath  string
}

func NewDefault() *Resolver {
	return &Resolver{PasswdPath: "/etc/passwd", GroupPath: "/etc/group"}
}

// Resolve looks name up in the passwd database.
func (r *Resolver) Resolve(name string) (User, error) {
	if !ValidUsername(name) {
		return User{}, fmt.Errorf("invalid username %q", name)
	}
	users, err := loadPasswd(r.PasswdPath)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.Name == name {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: %s", ErrUserNotFound, name)
}

// LookupUID finds the user owning uid, for reporting on existing
// runtime directories.
func (r *Resolver) LookupUID(uid int) (User, error) {
	users, err := loadPasswd(r.PasswdPath)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.UID == uid {
			return u, nil
		}
	}
	return User{}, fmt.Errorf("%w: uid %d", ErrUserNotFound, uid)
}

// GroupName resolves gid to its group name, or "" when unknown.
func (r *Resolver) GroupName(gid int) (string, error) {
	b, err := os.ReadFile(r.GroupPath)
	if err != nil {
		return "", err
	}
	lines, err := readLines(bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if skippable(line) {
			continue
		}
		parts := parseColonLine(line)
		if len(parts) < 4 {
			continue
		}
		g, err := atoi(parts[2], "group.gid")
		if err != nil {
			return "", err
		}
		if g == gid {
			return parts[0], nil
		}
	}
	return "", nil
}

func loadPasswd(path string) ([]User, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	lines, err := readLines(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}

	var users []User
	for _, line := range lines {
		if skippable(line) {
			continue
		}
		parts := parseColonLine(line)
		if len(parts) < 7 {
			// Tolerate unknown lines.
			continue
		}
		uid, err := atoi(parts[2], "passwd.uid")
		if err != nil {
			return nil, err
		}
		gid, err := atoi(parts[3], "passwd.gid")
		if err != nil {
			return nil, err
		}
		users = append(users, User{
			Name:  parts[0],
			UID:   uid,
			GID:   gid,
			Home:  parts[5],
			Shell: parts[6],
		})
	}
	return users, nil
}
