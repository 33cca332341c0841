package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"fx-converter/internal/conversion"
)

const (
	textSeparator = "|"
	textSuccess   = "SUCCESS"
	// UpdatedAtLayout renders the rate fetch time in text responses.
	UpdatedAtLayout = "2006-01-02 15:04:05"
)

// TextCodec speaks "FROM|TO|AMOUNT" requests and
// "SUCCESS|FROM|TO|AMOUNT|RESULT|RATE|UPDATED_AT|SOURCE" responses.
//
// Messages carry no length prefix or terminator: one read is one message, so
// a client must wait for a response before sending the next request.
type TextCodec struct{}

func (TextCodec) Name() string { return Text }

func (TextCodec) DecodeRequest(frame []byte) (conversion.Request, error) {
	line := strings.TrimRight(string(frame), "\r\n")
	parts := strings.Split(line, textSeparator)
	if len(parts) != 3 {
		return conversion.Request{}, framingErrorf("use FROM|TO|AMOUNT")
	}

	from, err := normalizeCode(parts[0])
	if err != nil {
		return conversion.Request{}, err
	}
	to, err := normalizeCode(parts[1])
	if err != nil {
		return conversion.Request{}, err
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return conversion.Request{}, framingErrorf("invalid amount")
	}
	if !amount.IsPositive() {
		return conversion.Request{}, conversion.ErrInvalidAmount
	}

	return conversion.Request{From: from, To: to, Amount: amount.InexactFloat64()}, nil
}

func (TextCodec) EncodeResult(req conversion.Request, res conversion.Result) ([]byte, error) {
	for _, v := range []float64{req.Amount, res.Amount, res.Rate} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.New("result out of range")
		}
	}

	fields := []string{
		textSuccess,
		req.From,
		req.To,
		FormatAmount(req.Amount),
		FormatAmount(res.Amount),
		FormatRate(res.Rate),
		res.UpdatedAt.Format(UpdatedAtLayout),
		string(res.Source),
	}
	return []byte(strings.Join(fields, textSeparator)), nil
}

// FormatAmount renders an amount with two decimals, rounding the binary
// value (1.005 renders as 1.00).
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// FormatRate renders a rate with six decimals.
func FormatRate(v float64) string {
	return strconv.FormatFloat(v, 'f', 6, 64)
}

func (TextCodec) EncodeError(err error) []byte {
	return encodeError(err)
}

func (TextCodec) EncodeRequest(req conversion.Request) ([]byte, error) {
	from, err := normalizeCode(req.From)
	if err != nil {
		return nil, err
	}
	to, err := normalizeCode(req.To)
	if err != nil {
		return nil, err
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) {
		return nil, framingErrorf("invalid amount")
	}
	amount := decimal.NewFromFloat(req.Amount)
	return []byte(strings.Join([]string{from, to, amount.String()}, textSeparator)), nil
}

func (TextCodec) DecodeResponse(frame []byte) (Reply, error) {
	if msg, ok := parseError(frame); ok {
		return Reply{Err: msg}, nil
	}

	parts := strings.Split(strings.TrimRight(string(frame), "\r\n"), textSeparator)
	if len(parts) != 8 || parts[0] != textSuccess {
		return Reply{}, fmt.Errorf("unexpected text response %q", string(frame))
	}

	var nums [3]float64
	for i, raw := range parts[3:6] {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return Reply{}, fmt.Errorf("parse response field %d: %w", i+3, err)
		}
		nums[i] = d.InexactFloat64()
	}

	updatedAt, err := time.ParseInLocation(UpdatedAtLayout, parts[6], time.Local)
	if err != nil {
		return Reply{}, fmt.Errorf("parse updated at: %w", err)
	}

	return Reply{
		From:   parts[1],
		To:     parts[2],
		Amount: nums[0],
		Result: conversion.Result{
			Amount:    nums[1],
			Rate:      nums[2],
			UpdatedAt: updatedAt,
			Source:    conversion.SourceLabel(parts[7]),
		},
	}, nil
}

var _ Codec = TextCodec{}
