package main

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	quic "github.com/bhesmans/quince"
	"github.com/bhesmans/quince/transport"
)

func newClientCommand() *cobra.Command {
	var listenAddr string
	var passphrase string
	var data string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "client <address>",
		Short: "Connect, send data on a stream, and print whatever is echoed back",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logrus.New()
			if verbose {
				logger.SetLevel(logrus.DebugLevel)
			}

			config := quic.Config{
				Logger: logger,
				TLS: func(isClient bool) transport.Handshake {
					return newDemoHandshake(isClient, passphrase)
				},
				TransportParams: transport.TransportParameters{
					InitialMaxStreamData: 64 * 1024,
					InitialMaxDataKB:     1024,
					InitialMaxStreamID:   1 << 20,
					IdleTimeoutSeconds:   30,
				},
			}
			handler := &clientHandler{data: data, logger: logger}
			handler.wg.Add(1)

			client := quic.NewClient(config)
			client.SetHandler(handler)
			if err := client.ListenAndServe(listenAddr); err != nil {
				return err
			}
			if err := client.Connect(args[0]); err != nil {
				return err
			}
			handler.wg.Wait()
			return client.Close()
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:0", "listen on the given IP:port")
	cmd.Flags().StringVar(&passphrase, "passphrase", "quince-demo", "shared passphrase for the demo handshake")
	cmd.Flags().StringVar(&data, "data", "hello from quince\n", "data to send on the first stream")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every packet and frame")
	return cmd
}

type clientHandler struct {
	wg     sync.WaitGroup
	data   string
	logger *logrus.Logger
}

func (h *clientHandler) Serve(c *quic.Conn, events []quic.Event) {
	for _, e := range events {
		switch e.Type {
		case quic.EventConnAccept:
			st, err := c.OpenStream()
			if err != nil {
				h.logger.WithError(err).Error("open stream failed")
				continue
			}
			st.Write([]byte(h.data))
			st.CloseWrite()
		case quic.EventStreamReadable:
			st := c.Stream(e.StreamID)
			if st == nil {
				continue
			}
			buf := make([]byte, 4096)
			n := st.Read(buf)
			if n > 0 {
				fmt.Printf("stream %d: %s", e.StreamID, buf[:n])
			}
			if st.ReceivedFin() {
				st.Close()
				h.wg.Done()
			}
		case quic.EventConnClose:
			h.logger.Info("connection closed")
		}
	}
}
