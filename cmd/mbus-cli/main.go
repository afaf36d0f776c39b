// mbus-cli talks to a running mbusd from the command line: publish a
// message, listen on a topic, or check the broker's health. The broker
// is located through the descriptor file mbusd writes.
package main

import (
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/beanfork/mbus/internal/descriptor"
)

var descriptorPath string

func main() {
	rootCmd := &cobra.Command{
		Use:          "mbus-cli",
		Short:        "mbus client tool",
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&descriptorPath, "descriptor", "mbus.json",
		"path to the broker descriptor file written by mbusd")

	rootCmd.AddCommand(newPublishCommand())
	rootCmd.AddCommand(newListenCommand())
	rootCmd.AddCommand(newHealthCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadDescriptor resolves the broker from the descriptor file.
func loadDescriptor() (descriptor.Descriptor, []byte, error) {
	d, err := descriptor.Read(afero.NewOsFs(), descriptorPath)
	if err != nil {
		return descriptor.Descriptor{}, nil, err
	}
	key, err := d.Key()
	if err != nil {
		return descriptor.Descriptor{}, nil, err
	}
	return d, key, nil
}
