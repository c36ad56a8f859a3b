// Command abcore drives the workbench model core from a terminal: it opens a
// project, keeps the metadata mirror in sync and shows the status bar.
package main

func main() {
	Execute()
}
