package config

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Account holds the login triple for one terminal account.
type Account struct {
	Login    uint64
	Password string
	Server   string
}

// Credentials holds the master (upstream) and slave (mirror) accounts.
type Credentials struct {
	Master Account
	Slave  Account
}

// requiredTitles are the rows the credentials table must carry.
var requiredTitles = []string{
	"master_login", "master_password", "master_server",
	"slave_login", "slave_password", "slave_server",
}

// LoadCredentials reads the two-column Title,Value credentials table.
// A missing required title is fatal.
func LoadCredentials(path string) (*Credentials, error) {
	f, err := os.Open(path) // #nosec G304 -- path comes from the config file
	if err != nil {
		return nil, fmt.Errorf("opening credentials file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s is empty", path)
	}

	header := rows[0]
	titleCol, valueCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "Title":
			titleCol = i
		case "Value":
			valueCol = i
		}
	}
	if titleCol == -1 || valueCol == -1 {
		return nil, fmt.Errorf("%s must contain 'Title' and 'Value' columns", path)
	}

	values := make(map[string]string, len(rows)-1)
	for _, row := range rows[1:] {
		if len(row) <= titleCol || len(row) <= valueCol {
			continue
		}
		title := strings.TrimSpace(row[titleCol])
		if title == "" {
			continue
		}
		values[title] = strings.TrimSpace(row[valueCol])
	}

	var missing []string
	for _, title := range requiredTitles {
		if _, ok := values[title]; !ok {
			missing = append(missing, title)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%s missing titles: %s", path, strings.Join(missing, ", "))
	}

	masterLogin, err := strconv.ParseUint(values["master_login"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("master_login must be an integer: %w", err)
	}
	slaveLogin, err := strconv.ParseUint(values["slave_login"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("slave_login must be an integer: %w", err)
	}

	return &Credentials{
		Master: Account{
			Login:    masterLogin,
			Password: values["master_password"],
			Server:   values["master_server"],
		},
		Slave: Account{
			Login:    slaveLogin,
			Password: values["slave_password"],
			Server:   values["slave_server"],
		},
	}, nil
}
