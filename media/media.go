// Package media provides the device side of photo selection: permission
// checks, a gallery picker, a camera capture and a way to tell the user
// something.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
)

// ErrCanceled is returned by a Picker when the user backs out.
var ErrCanceled = errors.New("canceled")

type Permission string

const (
	MediaLibrary Permission = "media-library"
	Camera       Permission = "camera"
)

type Permissions interface {
	// Request asks for p and reports whether it was granted.
	Request(ctx context.Context, p Permission) (bool, error)
}

// Picker returns the local path of a selected or captured image.
type Picker interface {
	Pick(ctx context.Context) (string, error)
}

// Notifier shows a message to the user.
type Notifier interface {
	Notify(msg string)
}

// Device groups the collaborators photo selection needs. Nil pickers mean
// the capability is not available.
type Device struct {
	Permissions Permissions
	Gallery     Picker
	Camera      Picker
	Notifier    Notifier
}

// StaticPermissions grants what is set to true.
type StaticPermissions map[Permission]bool

func (s StaticPermissions) Request(_ context.Context, p Permission) (bool, error) {
	return s[p], nil
}

// WriterNotifier prints messages to W, one per line.
type WriterNotifier struct {
	W io.Writer
}

func (n WriterNotifier) Notify(msg string) {
	fmt.Fprintln(n.W, msg)
}
