package tele

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/juju/errors"
	"github.com/temoto/alive/v2"

	"github.com/shadeworks/shaded/helpers"
	tele_config "github.com/shadeworks/shaded/internal/tele/config"
	"github.com/shadeworks/shaded/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	queueDepth            = 32
)

type message struct {
	topic   string
	payload []byte
	retain  bool
}

type tele struct {
	conf    tele_config.Config
	log     *log2.Log
	m       mqtt.Client
	alive   *alive.Alive
	backoff *helpers.Backoff
	msgCh   chan message

	netTimeout time.Duration
	current    uint32 // last published State

	topicConnect string // <clientid>/c   retained online marker + will
	topicState   string // <clientid>/w/1s
	topicError   string // <clientid>/w/1e
}

func New() Teler { return &tele{} }

func (t *tele) Init(ctx context.Context, log *log2.Log, conf tele_config.Config) error {
	t.conf = conf
	t.log = log
	if !conf.Enable {
		return nil
	}
	if conf.BrokerURL == "" {
		return errors.NotValidf("config: tele.broker_url is required when tele is enabled")
	}
	if conf.ClientID == "" {
		return errors.NotValidf("code error tele ClientID=empty")
	}
	if conf.LogDebug {
		t.log.SetLevel(log2.LDebug)
	}
	mqtt.ERROR = t.log
	mqtt.CRITICAL = t.log
	mqtt.WARN = t.log

	t.topicConnect = fmt.Sprintf("%s/c", conf.ClientID)
	t.topicState = fmt.Sprintf("%s/w/1s", conf.ClientID)
	t.topicError = fmt.Sprintf("%s/w/1e", conf.ClientID)
	t.netTimeout = helpers.IntSecondDefault(conf.NetworkTimeoutSec, DefaultNetworkTimeout)
	t.m = mqtt.NewClient(t.clientOptions(conf))

	t.alive = alive.NewAlive()
	t.backoff = &helpers.Backoff{Min: 1 * time.Second, Max: 2 * time.Minute, K: 2}
	t.msgCh = make(chan message, queueDepth)
	if !t.alive.Add(1) {
		panic("code error tele Init after Close")
	}
	go t.worker()
	return nil
}

// clientOptions builds the broker connection settings: persistent
// session under the device client id, retained will on the connect
// topic, connect retry at half keepalive.
func (t *tele) clientOptions(conf tele_config.Config) *mqtt.ClientOptions {
	keepAlive := helpers.IntSecondDefault(conf.KeepaliveSec, 60*time.Second)
	pingTimeout := helpers.IntSecondDefault(conf.PingTimeoutSec, 30*time.Second)
	credFun := func() (string, string) { return conf.ClientID, conf.MqttPassword }

	return mqtt.NewClientOptions().
		AddBroker(conf.BrokerURL).
		SetBinaryWill(t.topicConnect, []byte{0x00}, 1, true).
		SetCleanSession(false).
		SetClientID(conf.ClientID).
		SetCredentialsProvider(credFun).
		SetKeepAlive(keepAlive).
		SetPingTimeout(pingTimeout).
		SetOrderMatters(false).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(keepAlive / 2).
		SetOnConnectHandler(func(c mqtt.Client) {
			t.log.Debugf("tele connected broker=%s", conf.BrokerURL)
			c.Publish(t.topicConnect, 1, true, []byte{0x01})
		})
}

func (t *tele) Close() {
	if t.alive == nil {
		return
	}
	t.State(State_Shutdown)
	// give the worker a moment to flush, then cut the connection
	time.Sleep(100 * time.Millisecond)
	t.alive.Stop()
	t.alive.Wait()
	if t.m.IsConnected() {
		t.m.Publish(t.topicConnect, 1, true, []byte{0x00})
		t.m.Disconnect(250)
	}
}

// State publishes a transition; repeated same-state calls are dropped.
func (t *tele) State(s State) {
	if t.alive == nil {
		return
	}
	if State(atomic.SwapUint32(&t.current, uint32(s))) == s {
		return
	}
	t.log.Debugf("tele state=%s", s)
	t.enqueue(message{topic: t.topicState, payload: []byte{byte(s)}})
}

func (t *tele) Error(e error) {
	if t.alive == nil || e == nil {
		return
	}
	t.enqueue(message{topic: t.topicError, payload: []byte(e.Error())})
}

// best effort: a full queue drops the message, never blocks the caller
func (t *tele) enqueue(m message) {
	select {
	case t.msgCh <- m:
	default:
		t.log.Debugf("tele queue full, dropped topic=%s", m.topic)
	}
}

func (t *tele) worker() {
	defer t.alive.Done()
	t.m.Connect() // network IO in background, paho retries on its own
	stopch := t.alive.StopChan()
	for {
		select {
		case m := <-t.msgCh:
			t.deliver(m, stopch)
		case <-stopch:
			return
		}
	}
}

func (t *tele) deliver(m message, stopch <-chan struct{}) {
	for {
		tok := t.m.Publish(m.topic, 1, m.retain, m.payload)
		if tok.WaitTimeout(t.netTimeout) && tok.Error() == nil {
			t.backoff.Reset()
			return
		}
		t.log.Debugf("tele publish topic=%s err=%v", m.topic, tok.Error())
		t.backoff.Failure()
		select {
		case <-time.After(t.backoff.DelayBefore()):
		case <-stopch:
			return
		}
	}
}
