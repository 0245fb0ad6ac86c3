package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validCredentials = `Title,Value
master_login,11111111
master_password,masterpass
master_server,BrokerA-Demo
slave_login,22222222
slave_password,slavepass
slave_server,BrokerB-Live
`

func TestLoadCredentials(t *testing.T) {
	path := writeCSV(t, "credentials.csv", validCredentials)

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}

	if creds.Master.Login != 11111111 || creds.Master.Server != "BrokerA-Demo" {
		t.Errorf("master = %+v", creds.Master)
	}
	if creds.Slave.Login != 22222222 || creds.Slave.Password != "slavepass" {
		t.Errorf("slave = %+v", creds.Slave)
	}
}

func TestLoadCredentials_ColumnOrderIrrelevant(t *testing.T) {
	path := writeCSV(t, "credentials.csv", `Value,Title
11111111,master_login
x,master_password
s1,master_server
22222222,slave_login
y,slave_password
s2,slave_server
`)

	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials failed: %v", err)
	}
	if creds.Master.Login != 11111111 || creds.Slave.Server != "s2" {
		t.Errorf("unexpected credentials: %+v", creds)
	}
}

func TestLoadCredentials_MissingTitles(t *testing.T) {
	path := writeCSV(t, "credentials.csv", `Title,Value
master_login,11111111
master_password,x
master_server,s
`)

	_, err := LoadCredentials(path)
	if err == nil {
		t.Fatal("expected error for missing slave titles")
	}
	for _, title := range []string{"slave_login", "slave_password", "slave_server"} {
		if !strings.Contains(err.Error(), title) {
			t.Errorf("error %q should name missing title %s", err, title)
		}
	}
}

func TestLoadCredentials_NonNumericLogin(t *testing.T) {
	path := writeCSV(t, "credentials.csv", strings.Replace(validCredentials, "11111111", "not-a-login", 1))

	if _, err := LoadCredentials(path); err == nil {
		t.Error("expected error for non-numeric master_login")
	}
}

func TestLoadCredentials_MissingHeaderColumns(t *testing.T) {
	path := writeCSV(t, "credentials.csv", "Name,Setting\nmaster_login,1\n")

	if _, err := LoadCredentials(path); err == nil {
		t.Error("expected error when Title/Value columns are absent")
	}
}
