/*
Copyright © 2024 Dean
*/
package main

import "pdfqa/cmd"

func main() {
	cmd.Execute()
}
