package main

import (
	"context"
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"

	"github.com/AdvaitD04/LiveandLetCode/internal/protocol"
)

type sendOptions struct {
	inputFlags

	addr   string
	format string
	clear  bool
}

func newSendCmd() *cobra.Command {
	var opts sendOptions

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Stream audio to a capture server over UDP",
		Long: `Stream audio packets to a capture server running the udp source.
A start packet is sent first and a stop packet once the input ends, so the
server records exactly the streamed audio.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conn, err := net.Dial("udp", opts.addr)
			if err != nil {
				return fmt.Errorf("failed to dial %s: %w", opts.addr, err)
			}
			defer conn.Close()

			return runSend(cmd.Context(), opts, cmd.InOrStdin(), conn, cmd.OutOrStdout())
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "127.0.0.1:4444", "Capture server UDP address")
	cmd.Flags().StringVar(&opts.format, "wire-format", "s16le", "Sample format on the wire (s16le or f32le)")
	cmd.Flags().BoolVar(&opts.clear, "clear", false, "Clear the server recording before streaming")

	return cmd
}

// runSend writes one packet per chunk to conn
func runSend(ctx context.Context, opts sendOptions, stdin io.Reader, conn io.Writer, stdout io.Writer) error {
	format, err := protocol.ParseFormat(opts.format)
	if err != nil {
		return err
	}

	src, err := opts.open(stdin)
	if err != nil {
		return err
	}
	defer src.Close()

	var sequence uint32
	control := func(command uint8) error {
		packet, err := protocol.EncodeControlPacket(command, sequence)
		if err != nil {
			return err
		}
		sequence++
		if _, err := conn.Write(packet); err != nil {
			return fmt.Errorf("failed to send %s: %w", protocol.ControlCommandName(command), err)
		}
		return nil
	}

	if opts.clear {
		if err := control(protocol.ControlClear); err != nil {
			return err
		}
	}
	if err := control(protocol.ControlStart); err != nil {
		return err
	}

	chunks, err := src.Start(ctx)
	if err != nil {
		return err
	}

	var frames int
	for chunk := range chunks {
		packet, err := protocol.EncodeAudioPacket(chunk, format, sequence)
		if err != nil {
			return err
		}
		if len(packet) > protocol.MaxPacketSize {
			return fmt.Errorf("packet of %d bytes exceeds the UDP limit, lower --frame-size", len(packet))
		}
		sequence++
		if _, err := conn.Write(packet); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
		frames += chunk.Frames()
	}

	if err := control(protocol.ControlStop); err != nil {
		return err
	}

	printf(stdout, "Sent %d frames in %d packets\n", frames, sequence)
	return nil
}
