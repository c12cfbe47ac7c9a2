package main

import (
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	quic "github.com/bhesmans/quince"
	"github.com/bhesmans/quince/transport"
)

func newServerCommand() *cobra.Command {
	var listenAddr string
	var passphrase string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Listen for connections and echo every stream it receives",
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
			server := quic.NewServer(config)
			server.SetHandler(&echoHandler{logger: logger})
			if err := server.ListenAndServe(listenAddr); err != nil {
				return err
			}
			logger.Infof("listening on %s", listenAddr)

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt)
			<-sig
			return server.Close()
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "0.0.0.0:4433", "listen on the given IP:port")
	cmd.Flags().StringVar(&passphrase, "passphrase", "quince-demo", "shared passphrase for the demo handshake")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log every packet and frame")
	return cmd
}

type echoHandler struct {
	logger *logrus.Logger
}

func (h *echoHandler) Serve(c *quic.Conn, events []quic.Event) {
	for _, e := range events {
		switch e.Type {
		case quic.EventConnAccept:
			h.logger.Infof("accepted connection from %s", c.RemoteAddr())
		case quic.EventStreamReadable:
			st := c.Stream(e.StreamID)
			if st == nil {
				continue
			}
			buf := make([]byte, 4096)
			n := st.Read(buf)
			if n > 0 {
				st.Write(buf[:n])
			}
			if st.ReceivedFin() {
				st.CloseWrite()
				st.Close()
			}
		case quic.EventConnClose:
			h.logger.Infof("connection from %s closed", c.RemoteAddr())
		}
	}
}
