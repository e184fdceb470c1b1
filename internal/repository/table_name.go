package repository

import (
	"fmt"
	"regexp"
)

var tableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// checkTableName guards table names that are interpolated into SQL.
func checkTableName(name string) error {
	if !tableNameRe.MatchString(name) {
		return fmt.Errorf("invalid table name %q", name)
	}
	return nil
}
