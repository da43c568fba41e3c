// capsicum-mode prints 1 if the process runs in capability mode, and 0
// if it does not or Capsicum is unavailable.
package main

import (
	"fmt"

	"github.com/go-capsicum/go-capsicum/capsicum"
)

func main() {
	if capsicum.Sandboxed() {
		fmt.Println("1")
	} else {
		fmt.Println("0")
	}
}
