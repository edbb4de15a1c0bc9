package iso8583

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/moov-io/iso8583"
	connection "github.com/moov-io/iso8583-connection"
)

// Reply is a validator's view of a response message.
type Reply struct {
	ResponseCode string
	STAN         string
	Amount       int64
	Balance      int64
}

func (r Reply) Approved() bool {
	return r.ResponseCode == ResponseApproved
}

// Client is a fare gate validator connected to the card service.
type Client struct {
	conn       *connection.Connection
	terminalID string
	stan       atomic.Uint32
}

// Dial connects a validator identified by terminalID to addr.
func Dial(addr, terminalID string) (*Client, error) {
	conn, err := connection.New(addr, Spec, ReadMessageLength, WriteMessageLength,
		connection.SendTimeout(5*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("creating connection: %w", err)
	}
	if err := conn.Connect(); err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	return &Client{conn: conn, terminalID: terminalID}, nil
}

func (c *Client) Ride(number string, distance float64) (Reply, error) {
	return c.send(number, ProcessingRide, map[int]string{
		fieldDistance: EncodeDistance(distance),
	})
}

func (c *Client) Payment(number string, baseAmount int64, distance float64) (Reply, error) {
	return c.send(number, ProcessingPayment, map[int]string{
		fieldAmount:   strconv.FormatInt(baseAmount, 10),
		fieldDistance: EncodeDistance(distance),
	})
}

func (c *Client) TopUp(number string, amount int64) (Reply, error) {
	return c.send(number, ProcessingTopUp, map[int]string{
		fieldAmount: strconv.FormatInt(amount, 10),
	})
}

func (c *Client) send(number, code string, extra map[int]string) (Reply, error) {
	stan := fmt.Sprintf("%06d", c.stan.Add(1)%1000000)

	request := iso8583.NewMessage(Spec)
	request.MTI(MTIRequest)
	fields := map[int]string{
		fieldCardNumber:     number,
		fieldProcessingCode: code,
		fieldSTAN:           stan,
		fieldTerminalID:     c.terminalID,
	}
	for id, value := range extra {
		fields[id] = value
	}
	for id, value := range fields {
		if err := request.Field(id, value); err != nil {
			return Reply{}, fmt.Errorf("setting field %d: %w", id, err)
		}
	}

	response, err := c.conn.Send(request)
	if err != nil {
		return Reply{}, fmt.Errorf("sending request: %w", err)
	}

	reply := Reply{STAN: stan}
	if reply.ResponseCode, err = response.GetString(fieldResponseCode); err != nil {
		return Reply{}, fmt.Errorf("reading response code: %w", err)
	}
	if raw, _ := response.GetString(fieldAmount); raw != "" {
		reply.Amount, _ = strconv.ParseInt(raw, 10, 64)
	}
	if raw, _ := response.GetString(fieldBalance); raw != "" {
		reply.Balance, _ = strconv.ParseInt(raw, 10, 64)
	}
	return reply, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
