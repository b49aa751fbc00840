// Package amqp implements the message broker interface for AMQP compliant brokers (ie RabbitMQ)
package amqp

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/streadway/amqp"

	"github.com/agrimart/bridge/lib/msg"
)

// Amqp implements a connection to a broker and a channel for reuse.
type Amqp struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

// New instantiates a new amqp broker.
func New(uri string) (msg.MsgBroker, error) {
	r := Amqp{}
	var err error

	if r.conn, err = amqp.Dial(uri); err != nil {
		return &r, err
	}
	r.ch = nil
	log.Printf("Connected to %s", uri)

	return &r, err
}

// Setup obtains an amqp channel and declares the message broker exchanges:
//
// - rr ("reconcile requests"): the market service publishes requests to this exchange
//
// - re ("resolution events"): the reconciler service publishes events to this exchange
func (r *Amqp) Setup(x interface{}) error {
	// obtain a one-use channel
	channel, err := r.conn.Channel()
	if err != nil {
		return err
	}
	defer channel.Close()
	// declare exchanges
	if err = channel.ExchangeDeclare("rr", "topic", true, false, false, false, nil); err != nil {
		return err
	}
	err = channel.ExchangeDeclare("re", "topic", true, false, false, false, nil)
	return err
}

// Close terminates gracefully the connection to the AMQP message broker
func (r *Amqp) Close() error {
	if r.ch != nil {
		if err := r.ch.Close(); err != nil {
			log.Printf("Error closing amqp.Channel:%e", err)
		}
		r.ch = nil
		log.Printf("amqp.Channel closed!")
	}
	return r.conn.Close()
}

// SendReconcile publishes a reconcile request to the "rr" exchange
func (r *Amqp) SendReconcile(net string, req msg.ReconcileReq) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(req); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-reconcile-name": net + "." + req.Username},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("rr", net+".intent."+req.Username, false, false, m); err != nil {
		log.Printf("[%s] Error sending reconcile request to message broker %e", net, err)
	}
	return
}

// SendResolution publishes a resolution event to the "re" exchange
func (r *Amqp) SendResolution(net string, ev msg.Resolution) (err error) {
	// marshal to JSON
	var jsonDoc []byte
	if jsonDoc, err = json.Marshal(ev); err != nil {
		return
	}
	// obtain channel if not present
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return
		}
	}
	// build body
	m := amqp.Publishing{
		Headers:     amqp.Table{"x-resolution-name": net + "." + ev.Username},
		Body:        jsonDoc,
		ContentType: "application/json",
	}
	// publish
	if err = r.ch.Publish("re", net+".resolved."+ev.Username, false, false, m); err != nil {
		log.Printf("[%s] Error sending resolution event to message broker %e", net, err)
	}
	return
}

// GetReconciles consumes requests from the "rr" exchange for the specified network
// pushing them to the returned channel. The Mutex pointer is provided to ensure the
// consumed message has been fully dealt with by the management function, so the message
// consumed is only acknowledged when the mutex is unlocked.
func (r *Amqp) GetReconciles(net string, mut *sync.Mutex) (<-chan msg.ReconcileReq, <-chan error, error) {
	msgs, err := r.consume("rr", net)
	if err != nil {
		return nil, nil, err
	}
	// define channels to return
	reqs := make(chan msg.ReconcileReq)
	errors := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var req msg.ReconcileReq
			if err := json.Unmarshal(m.Body, &req); err != nil {
				errors <- err
				continue
			}
			reqs <- req
			mut.Lock() // wait for reconciler to finish processing the request
			m.Ack(false)
		}
	}()
	return reqs, errors, nil
}

// GetResolutions consumes events from the "re" exchange pushing them to the returned
// channel. The Mutex pointer is provided to ensure the consumed message has been fully
// dealt with by the management function, so the message consumed is only acknowledged
// when the mutex is unlocked.
func (r *Amqp) GetResolutions(net string, mut *sync.Mutex) (<-chan msg.Resolution, <-chan error, error) {
	msgs, err := r.consume("re", net)
	if err != nil {
		return nil, nil, err
	}
	// define channels to return
	eves := make(chan msg.Resolution)
	errors := make(chan error)
	// start routine to consume messages from broker
	go func() {
		for m := range msgs {
			var ev msg.Resolution
			if err := json.Unmarshal(m.Body, &ev); err != nil {
				errors <- err
				continue
			}
			eves <- ev
			mut.Lock() // wait for market to finish processing the event
			m.Ack(false)
		}
	}()
	return eves, errors, nil
}

// consume declares and binds the queue for exchange/net and returns its delivery channel.
func (r *Amqp) consume(exchange, net string) (<-chan amqp.Delivery, error) {
	var err error
	if r.ch == nil {
		if r.ch, err = r.conn.Channel(); err != nil {
			return nil, err
		}
	}
	// declare queue
	if _, err = r.ch.QueueDeclare(exchange+net, true, false, false, false, nil); err != nil {
		return nil, err
	}
	// bind queue to exchange
	if err = r.ch.QueueBind(exchange+net, net+".*.*", exchange, false, nil); err != nil {
		return nil, err
	}
	// create channel for receiving messages
	return r.ch.Consume(exchange+net, "bridge-"+exchange+"-"+net, false, false, false, false, nil)
}
