// Reitti - AI-assisted security event routing
// Normalize. Plan. Dispatch. Record.
package main

func main() {
	Execute()
}
