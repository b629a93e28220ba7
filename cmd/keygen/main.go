package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/mediadash/backend/pkg/utils/keygen"
)

func main() {
	length := flag.Int("length", 40, "token length")
	flag.Parse()

	admin, err := keygen.GenerateToken(*length)
	if err != nil {
		log.Fatalf("Failed to generate admin key: %v", err)
	}
	worker, err := keygen.GenerateToken(*length)
	if err != nil {
		log.Fatalf("Failed to generate worker token: %v", err)
	}

	fmt.Println("# paste into config/config.yaml and the agent's worker_token")
	fmt.Println("auth:")
	fmt.Printf("  admin_api_key: %q\n", admin)
	fmt.Printf("  worker_token: %q\n", worker)
}
