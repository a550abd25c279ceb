package main

import "github.com/opsmesh/kube-discovery/cmd"

func main() {
	cmd.Execute()
}
