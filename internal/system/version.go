package system

import "fmt"

var Name = "kube-discovery"
var Version = "<unset>"
var Commit = "<unset>"
var Repository = "https://github.com/opsmesh/kube-discovery"

func PrettyInfo() string {
	return fmt.Sprintf(`
===========================================================================
Application: %s
Version %s
GOTO: %s/tree/%s
===========================================================================
`, Name, Version, Repository, Commit)
}
