package store

import (
	"fmt"
	"strconv"
)

// visibleProjectIDs builds the ownership subquery restricting site records
// to projects the viewer manages or is a member of. param is the positional
// index of the viewer id argument in the surrounding query.
func visibleProjectIDs(param int) string {
	return fmt.Sprintf(`
		SELECT p.id
		FROM projects p
		LEFT JOIN project_members pm ON pm.project_id = p.id
		WHERE p.manager_id = $%d OR pm.user_id = $%d`, param, param)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
