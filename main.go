package main

import "github.com/ValentinKolb/dVer/cmd"

func main() {
	cmd.Execute()
}
