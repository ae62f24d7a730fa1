package models

import (
	"fmt"
	"net"
	"strconv"
)

// ConnectionDescriptor holds the parsed fields of a PostgreSQL connection URL.
// Build it with connection.Parse; the zero value is not a valid descriptor.
type ConnectionDescriptor struct {
	Scheme   string
	Username string
	Password string
	Host     string
	Port     int
	Database string
}

// Address returns host:port.
func (d ConnectionDescriptor) Address() string {
	return net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// String renders the descriptor as a URL with the password masked.
func (d ConnectionDescriptor) String() string {
	return fmt.Sprintf("%s://%s:%s@%s:%d/%s", d.Scheme, d.Username, RedactedValue, d.Host, d.Port, d.Database)
}
