// Package criteria implements the parameter filters understood by List
// operations.
package criteria

import (
	"github.com/viant/overlay/service/dao"
)

// FilterByStatus reports whether an entity with the given status passes the
// supplied parameters. An empty parameter list or an unrecognised parameter
// name matches everything.
func FilterByStatus(status string, parameters []*dao.Parameter) bool {
	switch len(parameters) {
	case 0:
		return true
	case 1:
		if parameters[0].Name == "PatchStatus" {
			switch actual := parameters[0].Value.(type) {
			case string:
				return status == actual
			case []string:
				for _, s := range actual {
					if status == s {
						return true
					}
				}
				return false
			}
		}
	}
	return true
}
