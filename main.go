// SPDX-License-Identifier: MPL-2.0

package main

import cmd "github.com/invowk/packfetch/cmd/packfetch"

func main() {
	cmd.Execute()
}
