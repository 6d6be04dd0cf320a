package main

import (
	"fmt"
	"time"

	wstransport "github.com/trezcool/ulms/services/transport/websocket"
)

func (cli *commandLine) token(secret, studentID, examID string, ttl time.Duration) error {
	token, err := wstransport.NewToken(secret, studentID, examID, cli.conf.AppName, ttl, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, token)
	return nil
}
