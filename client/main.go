package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/pflag"

	"github.com/wfunc/bb84server/network"
	adminrpc "github.com/wfunc/bb84server/rpc"
	"github.com/wfunc/bb84server/state"
)

const usage = `commands:
  join <alice|eve|bob|admin>   take a role
  bit <0|1>                    alice: choose the bit to send
  flip <on|off>                choose the diagonal basis for your role
  send                         alice: send the qubit
  skip                         eve: let the qubit pass
  measure                      eve or bob: measure the qubit
  next | reset                 admin: advance or restart the round
  history [n]                  admin rpc: sifting summary of the last n rounds
  leave | quit`

// send frames and writes one packet. A nil v sends an empty payload.
func send(c *websocket.Conn, msgID uint16, v interface{}) error {
	var (
		packet []byte
		err    error
	)
	if v == nil {
		packet, err = network.Encode(msgID, nil)
	} else {
		packet, err = network.EncodeJSON(msgID, v)
	}
	if err != nil {
		return err
	}
	return c.WriteMessage(websocket.BinaryMessage, packet)
}

func printState(data []byte) {
	var snap state.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.Printf("<- RECV bad game state: %v", err)
		return
	}
	qubit := "-"
	if snap.Qubit != nil {
		qubit = snap.Qubit.Symbol
	}
	measured := func(b *state.MeasurerView) string {
		if b.MeasuredValue == nil {
			return "-"
		}
		return strconv.Itoa(int(*b.MeasuredValue))
	}
	log.Printf("<- round %d %s qubit=%s | alice bit=%d flip=%t | eve flip=%t got=%s | bob flip=%t got=%s",
		snap.Round, snap.Phase, qubit,
		snap.Players.Alice.Bit, snap.Players.Alice.BasisFlip,
		snap.Players.Eve.BasisFlip, measured(&snap.Players.Eve),
		snap.Players.Bob.BasisFlip, measured(&snap.Players.Bob))
}

func main() {
	addr := pflag.String("addr", "localhost:3000", "server http address")
	role := pflag.String("role", "", "role to join on connect")
	rpcAddr := pflag.String("rpc", "127.0.0.1:3001", "admin rpc address for the history command")
	pflag.Parse()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Dial failed: %v", err)
	}
	defer c.Close()

	done := make(chan struct{})
	current := ""

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet of size %d", len(message))
				continue
			}
			switch packet.MsgID {
			case network.MsgTypeGameState:
				printState(packet.Data)
			case network.MsgTypeRoleAssigned:
				var ra network.RoleAssigned
				_ = packet.Unmarshal(&ra)
				log.Printf("<- joined as %s", ra.Role)
			case network.MsgTypeError:
				var em network.ErrorMessage
				_ = packet.Unmarshal(&em)
				log.Printf("<- error: %s", em.Message)
			default:
				log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
			}
		}
	}()

	if *role != "" {
		current = *role
		if err := send(c, network.MsgTypeJoin, network.JoinRequest{Role: *role}); err != nil {
			log.Fatalf("Write error: %v", err)
		}
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	fmt.Println(usage)
	for {
		select {
		case <-done:
			return
		case <-heartbeat.C:
			_ = send(c, network.MsgTypeHeartbeat, nil)
		case <-interrupt:
			log.Println("Interrupt received, closing connection.")
			err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			if err != nil {
				log.Println("Write close error:", err)
			}
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			return
		case text, ok := <-lines:
			if !ok {
				return
			}
			fields := strings.Fields(text)
			if len(fields) == 0 {
				continue
			}
			if fields[0] == "quit" {
				return
			}
			if fields[0] == "join" && len(fields) > 1 {
				current = fields[1]
			}
			if err := run(c, current, fields, *rpcAddr); err != nil {
				log.Println("->", err)
			}
		}
	}
}

func run(c *websocket.Conn, role string, fields []string, rpcAddr string) error {
	arg := ""
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch fields[0] {
	case "join":
		return send(c, network.MsgTypeJoin, network.JoinRequest{Role: arg})
	case "leave":
		return send(c, network.MsgTypeLeave, nil)
	case "bit":
		bit, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("bit: %w", err)
		}
		return send(c, network.MsgTypeSetAliceBit, network.SetAliceBitRequest{Bit: bit})
	case "flip":
		return send(c, network.MsgTypeSetBasisFlip, network.SetBasisFlipRequest{BasisFlip: arg == "on" || arg == "true"})
	case "send":
		return send(c, network.MsgTypeSendQubit, nil)
	case "skip":
		return send(c, network.MsgTypeEveSkip, nil)
	case "measure":
		if role == "eve" {
			return send(c, network.MsgTypeEveMeasure, nil)
		}
		return send(c, network.MsgTypeBobMeasure, nil)
	case "next":
		return send(c, network.MsgTypeNextRound, nil)
	case "reset":
		return send(c, network.MsgTypeResetGame, nil)
	case "history":
		limit, _ := strconv.Atoi(arg)
		return history(rpcAddr, limit)
	default:
		fmt.Println(usage)
		return nil
	}
}

func history(addr string, limit int) error {
	client, err := adminrpc.Dial(addr)
	if err != nil {
		return err
	}
	defer client.Close()

	sum, err := client.History(limit, false)
	if err != nil {
		return err
	}
	log.Printf("rounds=%d sifted=%d errors=%d qber=%.3f intercepted=%d key=%s",
		sum.Rounds, sum.Sifted, sum.Errors, sum.QBER, sum.Intercepted, sum.SiftedKey)
	return nil
}
