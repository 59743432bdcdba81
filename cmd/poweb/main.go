// main.go - PoWeb command line tool.
// Copyright (C) 2021  The Awala PoWeb Authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/carlmjohnson/versioninfo"
	"github.com/spf13/cobra"

	poweb "github.com/relaycorp/awala-poweb-go"
	"github.com/relaycorp/awala-poweb-go/commands"
	"github.com/relaycorp/awala-poweb-go/config"
)

var cfgFile string

func loadConfig() (*config.Config, error) {
	if cfgFile == "" {
		return config.Load(nil)
	}
	return config.LoadFile(cfgFile)
}

func newClient(cfg *config.Config) (*poweb.Client, error) {
	logBackend, err := cfg.LogBackend()
	if err != nil {
		return nil, err
	}
	return poweb.New(&poweb.ClientConfig{
		Endpoint:   cfg.Endpoint(),
		LogBackend: logBackend,
	})
}

func registerCommand() *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Generate a key pair and register a node with the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Shutdown()

			publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			preReg, err := client.PreRegisterNode(ctx, publicKey)
			if err != nil {
				return err
			}
			keyDER, err := x509.MarshalPKIXPublicKey(publicKey)
			if err != nil {
				return err
			}
			request := &commands.NodeRegistrationRequest{
				NodePublicKey: keyDER,
				Authorization: preReg.Authorization,
			}
			requestSerialized, err := request.Marshal()
			if err != nil {
				return err
			}
			registration, err := client.RegisterNode(ctx, requestSerialized)
			if err != nil {
				return err
			}

			keyPKCS8, err := x509.MarshalPKCS8PrivateKey(privateKey)
			if err != nil {
				return err
			}
			keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyPKCS8})
			certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: registration.NodeCertificate.Raw})
			if err = os.WriteFile(keyFile, keyPEM, 0600); err != nil {
				return err
			}
			if err = os.WriteFile(keyFile+".crt", certPEM, 0644); err != nil {
				return err
			}

			fmt.Printf("Registered node (certificate serial: %v)\n", registration.NodeCertificate.SerialNumber)
			if registration.GatewayInternetAddress != "" {
				fmt.Printf("Gateway address: %v\n", registration.GatewayInternetAddress)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "node.key", "file to write the node private key to")
	return cmd
}

func deliverCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deliver <parcel file>",
		Short: "Deliver a parcel to the gateway",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Shutdown()

			parcel, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			signer, err := loadSigner(cmd)
			if err != nil {
				return err
			}
			if err = client.DeliverParcel(cmd.Context(), parcel, signer); err != nil {
				return err
			}
			fmt.Println("Parcel delivered")
			return nil
		},
	}
	cmd.Flags().String("key", "node.key", "node private key file")
	return cmd
}

func collectCommand() *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Collect parcels from the gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := newClient(cfg)
			if err != nil {
				return err
			}
			defer client.Shutdown()

			signer, err := loadSigner(cmd)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			collection, err := client.CollectParcels([]poweb.Signer{signer}, cfg.Mode())
			if err != nil {
				return err
			}
			defer collection.Close()

			for i := 0; ; i++ {
				pc, err := collection.Next(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return nil
					}
					return err
				}
				if pc == nil {
					return nil
				}
				name := filepath.Join(outDir, fmt.Sprintf("parcel-%06d", i))
				if err = os.WriteFile(name, pc.Parcel, 0600); err != nil {
					return err
				}
				if err = pc.Ack(); err != nil {
					return err
				}
				fmt.Printf("Collected %s (%d bytes)\n", name, len(pc.Parcel))
			}
		},
	}
	cmd.Flags().StringVar(&outDir, "out", ".", "directory to write collected parcels to")
	cmd.Flags().String("key", "node.key", "node private key file")
	return cmd
}

func loadSigner(cmd *cobra.Command) (poweb.Signer, error) {
	keyFile, _ := cmd.Flags().GetString("key")
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, err
	}
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, fmt.Errorf("no PEM block in %s", keyFile)
	}
	rawKey, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, err
	}
	key, ok := rawKey.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an ed25519 key", keyFile)
	}

	certPEM, err := os.ReadFile(keyFile + ".crt")
	if err != nil {
		return nil, err
	}
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, fmt.Errorf("no PEM block in %s.crt", keyFile)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, err
	}
	return poweb.NewED25519Signer(cert, key)
}

func main() {
	rootCmd := &cobra.Command{
		Use:     "poweb",
		Short:   "PoWeb gateway client",
		Version: versioninfo.Short(),
	}
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "f", "", "configuration file")
	rootCmd.AddCommand(registerCommand(), deliverCommand(), collectCommand())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
