package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "station":
		return stationTemplate, nil
	case "ctl":
		return ctlTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const stationTemplate = `name = "station-alpha"
uuid = "4fa1ce9d-2c47-4b88-a6a4-52e5d37913c6"
history_limit = 128

[link]
# manual: wait for tetherctl; listen: accept a peer on boot; connect: dial
# endpoint on boot (single attempt, no retry).
mode = "manual"
endpoint = ""
secure = false

[radio]
kind = "tcp"
listen_addr = ":7600"
dial_timeout = "10s"

[radio.tls]
cert_file = ""
key_file = ""
ca_file = ""
server_name = ""

[admin]
addr = ":7610"
cors_origins = ["http://localhost:3000"]
# Empty token leaves the admin API open; set one to require
# "Authorization: Bearer <token>" on /v1 routes.
auth_token = ""
`

const ctlTemplate = `server: http://127.0.0.1:7610
timeout_seconds: 10
auth_token: ""
`
