package cli

import (
	"fmt"
	"io"
	"net/url"
	"os"

	"golang.org/x/term"

	"github.com/arloliu/go-sbus/config"
)

// passwordEnv names the variable holding the WebSocket bridge password.
const passwordEnv = "SBUS_PASSWORD"

// readPassword reads a password from the terminal without echo. Tests replace it.
var readPassword = func(prompt io.Writer) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no password given: set %s", passwordEnv)
	}

	fmt.Fprint(prompt, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}

	return string(b), nil
}

// fillPassword completes a WebSocket bridge URL that names a user but no
// password, from SBUS_PASSWORD or an interactive prompt.
func fillPassword(d *config.Device, prompt io.Writer) error {
	if d.Connection != config.ConnectionWebSocket {
		return nil
	}

	u, err := url.Parse(d.SerialPort)
	if err != nil {
		return fmt.Errorf("invalid bridge URL: %w", err)
	}
	if u.User == nil {
		return nil
	}
	if _, set := u.User.Password(); set {
		return nil
	}

	password := os.Getenv(passwordEnv)
	if password == "" {
		password, err = readPassword(prompt)
		if err != nil {
			return err
		}
	}

	u.User = url.UserPassword(u.User.Username(), password)
	d.SerialPort = u.String()

	return nil
}
