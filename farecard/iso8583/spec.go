package iso8583

import (
	"github.com/moov-io/iso8583"
	"github.com/moov-io/iso8583/encoding"
	"github.com/moov-io/iso8583/field"
	"github.com/moov-io/iso8583/padding"
	"github.com/moov-io/iso8583/prefix"
)

const (
	MTIRequest  = "0100"
	MTIResponse = "0110"

	ProcessingRide    = "000000"
	ProcessingPayment = "210000"
	ProcessingTopUp   = "220000"

	ResponseApproved          = "00"
	ResponseInvalidAmount     = "13"
	ResponseUnknownCard       = "14"
	ResponseInsufficientFunds = "51"
	ResponseCardDisabled      = "62"
	ResponseSystemError       = "96"
)

// Field numbers used by fare gate validators.
const (
	fieldCardNumber     = 2
	fieldProcessingCode = 3
	fieldAmount         = 4
	fieldSTAN           = 11
	fieldResponseCode   = 39
	fieldTerminalID     = 41
	fieldDistance       = 48
	fieldBalance        = 54
)

// Spec is the message spec spoken between fare gate validators and the
// card service.
var Spec *iso8583.MessageSpec = &iso8583.MessageSpec{
	Name: "Fare Card Terminal Spec",
	Fields: map[int]field.Field{
		0: field.NewString(&field.Spec{
			Length:      4,
			Description: "Message Type Indicator",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		1: field.NewBitmap(&field.Spec{
			Length:      8,
			Description: "Bitmap",
			Enc:         encoding.BytesToASCIIHex,
			Pref:        prefix.Hex.Fixed,
		}),
		fieldCardNumber: field.NewString(&field.Spec{
			Length:      19,
			Description: "Card Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldProcessingCode: field.NewString(&field.Spec{
			Length:      6,
			Description: "Processing Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldAmount: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Amount",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
		fieldSTAN: field.NewString(&field.Spec{
			Length:      6,
			Description: "System Trace Audit Number",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldResponseCode: field.NewString(&field.Spec{
			Length:      2,
			Description: "Response Code",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
		}),
		fieldTerminalID: field.NewString(&field.Spec{
			Length:      16,
			Description: "Terminal Identification",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LL,
		}),
		fieldDistance: field.NewString(&field.Spec{
			Length:      999,
			Description: "Distance in hundredths",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.LLL,
		}),
		fieldBalance: field.NewNumeric(&field.Spec{
			Length:      12,
			Description: "Balance After",
			Enc:         encoding.ASCII,
			Pref:        prefix.ASCII.Fixed,
			Pad:         padding.Left('0'),
		}),
	},
}
