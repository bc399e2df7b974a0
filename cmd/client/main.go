package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"

	"github.com/google/uuid"

	"fenrir/internal/transport"
)

func main() {
	serverAddr := flag.String("server", "127.0.0.1:9090", "Address of the exchange server")
	partyID := flag.String("party", "", "Party id (compulsory)")
	password := flag.String("password", "", "Party password")
	action := flag.String("action", "place", "Action to perform: ['place', 'cancel', 'cancel-all', 'new-book']")

	instrumentID := flag.Int64("instrument", 1, "Instrument id")
	side := flag.String("side", "BUY", "Order side: 'BUY' or 'SELL'")
	orderType := flag.String("type", "GTC", "Order type: 'MARKET', 'GTC', or 'IOC'")
	price := flag.Int64("price", 0, "Limit price in cents (required for GTC/IOC)")
	qty := flag.Int64("qty", 10, "Quantity")
	orderID := flag.Int64("order-id", 0, "Order id to cancel")

	flag.Parse()

	if *partyID == "" {
		fmt.Println("Error: -party is compulsory.")
		flag.Usage()
		os.Exit(1)
	}

	conn, err := net.Dial("tcp", *serverAddr)
	if err != nil {
		log.Fatalf("failed to connect to server at %s: %v", *serverAddr, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s as %q\n", *serverAddr, *partyID)

	env := transport.Envelope{
		RequestID:    uuid.New().String(),
		InstrumentID: *instrumentID,
		PartyID:      *partyID,
		Password:     *password,
	}

	switch strings.ToLower(*action) {
	case "place":
		env.Action = transport.ActionNewOrder
		env.Side = strings.ToUpper(*side)
		env.OrderType = strings.ToUpper(*orderType)
		env.Quantity = *qty
		if env.OrderType != "MARKET" {
			env.PriceCents = price
		}
	case "cancel":
		if *orderID == 0 {
			log.Fatal("-order-id is required for cancel")
		}
		env.Action = transport.ActionCancel
		env.OrderID = *orderID
	case "cancel-all":
		env.Action = transport.ActionCancelAll
	case "new-book":
		env.Action = transport.ActionCreateBook
	default:
		log.Fatalf("unknown action: %s", *action)
	}

	done := make(chan struct{})
	go readFrames(conn, done)

	if err := transport.WriteFrame(conn, env); err != nil {
		log.Fatalf("failed to send request: %v", err)
	}

	<-done
	fmt.Println("listening for pushed execution reports... (Ctrl+C to exit)")
	select {}
}

// readFrames is the connection's single reader for its whole lifetime,
// mirroring the teacher's go readReports(conn). It prints the synchronous
// dispatch response to the request this client just sent, closes done,
// and then keeps decoding frames, since SPEC_FULL.md §4.9 execution
// reports can arrive on the same connection at any later point whenever
// this party_id is a counterparty to someone else's trade. Frames are
// decoded generically and told apart by their "type" tag rather than by
// position in the stream, since either kind can arrive first.
func readFrames(conn net.Conn, done chan struct{}) {
	reader := bufio.NewReader(conn)
	first := true
	for {
		var frame map[string]any
		if err := transport.ReadFrame(reader, &frame); err != nil {
			log.Printf("connection closed: %v", err)
			if first {
				close(done)
			}
			return
		}
		if frame["type"] == string(transport.ExecutionReportType) {
			fmt.Printf("<- execution report: %+v\n", frame)
		} else {
			fmt.Printf("-> %+v\n", frame)
		}
		if first {
			first = false
			close(done)
		}
	}
}
