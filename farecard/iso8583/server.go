package iso8583

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"sync"

	"github.com/jonanatree/farecard/farecard/models"
	"github.com/jonanatree/farecard/internal/fare"
	"github.com/moov-io/iso8583"
	"golang.org/x/exp/slog"
)

// Terminal is what the validators may do to a card, addressed by the
// number printed on it.
type Terminal interface {
	PerformRideByNumber(ctx context.Context, number string, distance float64) (models.Transaction, error)
	MakePaymentByNumber(ctx context.Context, number string, baseAmount int64, distance float64) (models.Transaction, error)
	TopUpByNumber(ctx context.Context, number string, amount int64) (models.Transaction, error)
}

// Server accepts validator connections and answers each request message
// with a response carrying the outcome and the balance after it.
type Server struct {
	Addr string

	logger   *slog.Logger
	terminal Terminal
	ln       net.Listener

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.Mutex
	conns map[net.Conn]struct{}
}

func NewServer(logger *slog.Logger, addr string, terminal Terminal) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		Addr:     addr,
		logger:   logger.With(slog.String("component", "iso8583")),
		terminal: terminal,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[net.Conn]struct{}),
	}
}

// Start listens on Addr and serves connections in the background. Addr is
// updated with the bound address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("listening tcp port: %w", err)
	}
	s.ln = ln
	s.Addr = ln.Addr().String()

	s.wg.Add(1)
	go s.acceptLoop()

	s.logger.Info("iso8583 server started", slog.String("addr", s.Addr))
	return nil
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("accepting connection", slog.Any("err", err))
			continue
		}

		if !s.track(conn) {
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			if err := s.handle(conn); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.logger.Error("handling connection", slog.String("remote_addr", conn.RemoteAddr().String()), slog.Any("err", err))
			}
		}()
	}
}

// track registers conn so Close can reach it. Once the server is closing,
// conn is closed instead and track reports false.
func (s *Server) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
	conn.Close()
}

func (s *Server) handle(conn net.Conn) error {
	for {
		length, err := ReadMessageLength(conn)
		if err != nil {
			return err
		}
		raw := make([]byte, length)
		if _, err := io.ReadFull(conn, raw); err != nil {
			return fmt.Errorf("reading message: %w", err)
		}

		request := iso8583.NewMessage(Spec)
		if err := request.Unpack(raw); err != nil {
			return fmt.Errorf("unpacking message: %w", err)
		}

		response, err := s.Respond(s.ctx, request)
		if err != nil {
			return fmt.Errorf("building response: %w", err)
		}

		packed, err := response.Pack()
		if err != nil {
			return fmt.Errorf("packing response: %w", err)
		}
		if _, err := WriteMessageLength(conn, len(packed)); err != nil {
			return fmt.Errorf("writing length: %w", err)
		}
		if _, err := conn.Write(packed); err != nil {
			return fmt.Errorf("writing response: %w", err)
		}
	}
}

// Respond runs the request against the terminal and builds the response
// message. Failures of the request itself are reported in the response
// code; the error return is for messages that cannot be answered at all.
func (s *Server) Respond(ctx context.Context, request *iso8583.Message) (*iso8583.Message, error) {
	mti, err := request.GetMTI()
	if err != nil {
		return nil, fmt.Errorf("reading mti: %w", err)
	}
	if mti != MTIRequest {
		return nil, fmt.Errorf("unsupported mti %q", mti)
	}

	number, _ := request.GetString(fieldCardNumber)
	code, _ := request.GetString(fieldProcessingCode)
	stan, _ := request.GetString(fieldSTAN)
	terminalID, _ := request.GetString(fieldTerminalID)

	txn, err := s.dispatch(ctx, request, number, code)
	responseCode := ResponseCode(txn, err)

	logger := s.logger.With(
		slog.String("stan", stan),
		slog.String("terminal_id", terminalID),
		slog.String("processing_code", code),
		slog.String("response_code", responseCode),
	)
	if responseCode == ResponseSystemError {
		logger.Error("terminal request failed", slog.Any("err", err))
	} else {
		logger.Info("terminal request")
	}

	response := iso8583.NewMessage(Spec)
	response.MTI(MTIResponse)
	for id, value := range map[int]string{
		fieldCardNumber:     number,
		fieldProcessingCode: code,
		fieldSTAN:           stan,
		fieldTerminalID:     terminalID,
		fieldResponseCode:   responseCode,
	} {
		if value == "" {
			continue
		}
		if err := response.Field(id, value); err != nil {
			return nil, fmt.Errorf("setting field %d: %w", id, err)
		}
	}
	if err == nil {
		if err := response.Field(fieldAmount, strconv.FormatInt(txn.Amount, 10)); err != nil {
			return nil, fmt.Errorf("setting amount: %w", err)
		}
		if err := response.Field(fieldBalance, strconv.FormatInt(txn.Balance, 10)); err != nil {
			return nil, fmt.Errorf("setting balance: %w", err)
		}
	}
	return response, nil
}

func (s *Server) dispatch(ctx context.Context, request *iso8583.Message, number, code string) (models.Transaction, error) {
	if number == "" {
		return models.Transaction{}, fmt.Errorf("missing card number: %w", models.ErrNotFound)
	}

	switch code {
	case ProcessingRide:
		distance, err := readDistance(request)
		if err != nil {
			return models.Transaction{}, err
		}
		return s.terminal.PerformRideByNumber(ctx, number, distance)
	case ProcessingPayment:
		amount, err := readAmount(request)
		if err != nil {
			return models.Transaction{}, err
		}
		distance, err := readDistance(request)
		if err != nil {
			return models.Transaction{}, err
		}
		return s.terminal.MakePaymentByNumber(ctx, number, amount, distance)
	case ProcessingTopUp:
		amount, err := readAmount(request)
		if err != nil {
			return models.Transaction{}, err
		}
		return s.terminal.TopUpByNumber(ctx, number, amount)
	default:
		return models.Transaction{}, fmt.Errorf("unsupported processing code %q", code)
	}
}

func readAmount(request *iso8583.Message) (int64, error) {
	raw, err := request.GetString(fieldAmount)
	if err != nil || raw == "" {
		return 0, fmt.Errorf("missing amount: %w", models.ErrInvalidAmount)
	}
	amount, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q: %w", raw, models.ErrInvalidAmount)
	}
	return amount, nil
}

func readDistance(request *iso8583.Message) (float64, error) {
	raw, err := request.GetString(fieldDistance)
	if err != nil || raw == "" {
		return 0, nil
	}
	hundredths, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("distance %q: %w", raw, fare.ErrInvalidDistance)
	}
	return float64(hundredths) / 100, nil
}

// EncodeDistance renders a distance as whole hundredths for field 48.
func EncodeDistance(distance float64) string {
	return strconv.FormatInt(int64(math.Round(distance*100)), 10)
}

// ResponseCode maps the outcome of a terminal request to field 39.
func ResponseCode(txn models.Transaction, err error) string {
	switch {
	case err == nil:
		switch txn.Result {
		case models.TransactionResultSuccess:
			return ResponseApproved
		case models.TransactionResultInsufficientFunds:
			return ResponseInsufficientFunds
		case models.TransactionResultCardDisabled:
			return ResponseCardDisabled
		}
		return ResponseSystemError
	case errors.Is(err, models.ErrNotFound):
		return ResponseUnknownCard
	case errors.Is(err, models.ErrInvalidAmount), errors.Is(err, fare.ErrInvalidDistance):
		return ResponseInvalidAmount
	default:
		return ResponseSystemError
	}
}

// Close stops accepting connections, closes the open ones and waits for
// their handlers to return.
func (s *Server) Close() error {
	s.cancel()

	var err error
	if s.ln != nil {
		err = s.ln.Close()
	}

	s.mu.Lock()
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info("iso8583 server stopped")
	return err
}
