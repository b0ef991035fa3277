// Command gsm runs and controls dedicated game servers.
package main

func main() {
	Execute()
}
