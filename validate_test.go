package main

import (
	"slices"
	"testing"

	"github.com/bodul/loto/recognition"
)

func TestValidateReading(t *testing.T) {
	tests := []struct {
		name    string
		reading TicketReading
		numbers []int
		status  string
		wantErr bool
	}{
		{
			name:    "confident",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{5, 12, 90}, Confidence: 0.9},
			numbers: []int{5, 12, 90},
			status:  recognition.StatusOK,
		},
		{
			name:    "needs confirmation",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{5}, Confidence: 0.7},
			numbers: []int{5},
			status:  recognition.StatusNeedsConfirmation,
		},
		{
			name:    "boundary is confirmed",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{5}, Confidence: 0.85},
			numbers: []int{5},
			status:  recognition.StatusOK,
		},
		{
			name:    "low confidence",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{5}, Confidence: 0.59},
			status:  recognition.StatusRejected,
			wantErr: true,
		},
		{
			name:    "out of range and duplicates dropped",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{0, 7, 91, 7, 33}, Confidence: 0.9},
			numbers: []int{7, 33},
			status:  recognition.StatusOK,
		},
		{
			name:    "nothing valid",
			reading: TicketReading{LotteryType: "LOTO", AllNumbers: []int{0, 100}, Confidence: 0.95},
			status:  recognition.StatusRejected,
			wantErr: true,
		},
		{
			name:    "six digit numbers kept for other lotteries",
			reading: TicketReading{LotteryType: "VN_6_DIGIT", AllNumbers: []int{123456}, Confidence: 0.9},
			numbers: []int{123456},
			status:  recognition.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			numbers, status, err := validateReading(&tt.reading)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if status != tt.status {
				t.Fatalf("status = %q, want %q", status, tt.status)
			}
			if !slices.Equal(numbers, tt.numbers) {
				t.Fatalf("numbers = %v, want %v", numbers, tt.numbers)
			}
		})
	}
}
