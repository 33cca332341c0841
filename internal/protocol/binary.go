package protocol

import (
	"encoding/binary"
	"errors"
	"math"

	"fx-converter/internal/conversion"
)

const (
	// RequestSize is the exact length of a binary request.
	RequestSize = 10
	// ResponseSize is the exact length of a binary success response. Any other
	// length is an ERROR text.
	ResponseSize = 8
)

// BinaryCodec speaks fixed-width frames:
//
//	request:  FROM[3] TO[3] AMOUNT float32 big-endian
//	response: RESULT float32 big-endian, RATE float32 big-endian
//
// Errors are sent as plain "ERROR: ..." text and recognised by length.
type BinaryCodec struct{}

func (BinaryCodec) Name() string { return Binary }

func (BinaryCodec) DecodeRequest(frame []byte) (conversion.Request, error) {
	if len(frame) != RequestSize {
		return conversion.Request{}, framingErrorf("expected %d bytes, got %d", RequestSize, len(frame))
	}

	from, err := normalizeCode(string(frame[0:3]))
	if err != nil {
		return conversion.Request{}, err
	}
	to, err := normalizeCode(string(frame[3:6]))
	if err != nil {
		return conversion.Request{}, err
	}

	amount := float64(math.Float32frombits(binary.BigEndian.Uint32(frame[6:10])))
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return conversion.Request{}, framingErrorf("invalid amount")
	}
	if amount <= 0 {
		return conversion.Request{}, conversion.ErrInvalidAmount
	}

	return conversion.Request{From: from, To: to, Amount: amount}, nil
}

func (BinaryCodec) EncodeResult(_ conversion.Request, res conversion.Result) ([]byte, error) {
	if !fitsFloat32(res.Amount) || !fitsFloat32(res.Rate) {
		return nil, errors.New("result out of range")
	}
	result := float32(res.Amount)
	rate := float32(res.Rate)

	buf := make([]byte, ResponseSize)
	binary.BigEndian.PutUint32(buf[0:4], math.Float32bits(result))
	binary.BigEndian.PutUint32(buf[4:8], math.Float32bits(rate))
	return buf, nil
}

func (BinaryCodec) EncodeError(err error) []byte {
	msg := encodeError(err)
	// an error must never be mistaken for a success frame
	if len(msg) == ResponseSize {
		msg = append(msg, '.')
	}
	return msg
}

func (BinaryCodec) EncodeRequest(req conversion.Request) ([]byte, error) {
	from, err := normalizeCode(req.From)
	if err != nil {
		return nil, err
	}
	to, err := normalizeCode(req.To)
	if err != nil {
		return nil, err
	}
	if !fitsFloat32(req.Amount) {
		return nil, framingErrorf("invalid amount")
	}
	amount := float32(req.Amount)

	buf := make([]byte, RequestSize)
	copy(buf[0:3], from)
	copy(buf[3:6], to)
	binary.BigEndian.PutUint32(buf[6:10], math.Float32bits(amount))
	return buf, nil
}

func (BinaryCodec) DecodeResponse(frame []byte) (Reply, error) {
	if len(frame) != ResponseSize {
		msg, ok := parseError(frame)
		if !ok {
			msg = string(frame)
		}
		return Reply{Err: msg}, nil
	}

	result := math.Float32frombits(binary.BigEndian.Uint32(frame[0:4]))
	rate := math.Float32frombits(binary.BigEndian.Uint32(frame[4:8]))
	return Reply{
		Result: conversion.Result{Amount: float64(result), Rate: float64(rate)},
	}, nil
}

var _ Codec = BinaryCodec{}

func fitsFloat32(v float64) bool {
	return !math.IsNaN(v) && math.Abs(v) <= math.MaxFloat32
}
