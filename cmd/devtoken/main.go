// Command devtoken prints a bearer token for local development.
//
//	JWT_SECRET=dev go run ./cmd/devtoken -emp ADM1 -role Admin
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/warp/allocation-ledger/allocation"
	"github.com/warp/allocation-ledger/auth"
	"github.com/warp/allocation-ledger/config"
	"github.com/warp/allocation-ledger/directory"
)

func main() {
	emp := flag.String("emp", "ADM1", "employee code")
	name := flag.String("name", "", "display name")
	role := flag.String("role", string(directory.RoleAdmin), "role")
	region := flag.String("region", "", "region")
	branch := flag.String("branch", "", "branch")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	r, err := directory.ParseRole(*role)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	token, err := auth.Issue(cfg.JWTSecret, allocation.Actor{
		EmpCode: *emp,
		Name:    *name,
		Role:    r,
		Region:  *region,
		Branch:  *branch,
	}, *ttl, time.Now())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println(token)
}
