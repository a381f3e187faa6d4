package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ArionMiles/smsexpensor/pkg/api"
)

func TestWrite(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var txn api.Transaction
		if err := json.Unmarshal(val, &txn); err != nil {
			return err
		}
		if txn.MessageID != "a" || txn.Amount != "1000" {
			return errors.New("unexpected payload")
		}
		return nil
	})
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	producer.ExpectSendMessageAndSucceed()

	w := NewWithProducer(producer, "", nil)

	in := make(chan *api.Transaction, 3)
	ackChan := make(chan string, 3)
	in <- &api.Transaction{TransactionRecord: api.TransactionRecord{Amount: "1000"}, MessageID: "a"}
	in <- &api.Transaction{MessageID: "b"}
	in <- &api.Transaction{MessageID: "c"}
	close(in)

	require.NoError(t, w.Write(context.Background(), in, ackChan))

	close(ackChan)
	var acks []string
	for id := range ackChan {
		acks = append(acks, id)
	}
	assert.Equal(t, []string{"a", "c"}, acks, "failed publish is not acknowledged")
}

func TestNewRequiresBrokers(t *testing.T) {
	_, err := New(Config{}, nil)
	assert.Error(t, err)
}
