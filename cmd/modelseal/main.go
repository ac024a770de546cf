// Command modelseal encrypts detector weights for the secure model variant.
//
//	modelseal -genkey
//	ENCRYPTION_KEY=... modelseal -in models/best.onnx -out models/best.onnx.enc
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/sibisee/sibisee/internal/config"
	"github.com/sibisee/sibisee/internal/model"
)

func main() {
	in := flag.String("in", "", "plaintext weights file")
	out := flag.String("out", "", "encrypted output (default: <in>.enc)")
	genKey := flag.Bool("genkey", false, "print a new key and exit")
	envFile := flag.String("env", ".env", "dotenv file holding "+config.EnvEncryptionKey)
	flag.Parse()

	if *genKey {
		key, err := model.GenerateKey()
		if err != nil {
			fail(err)
		}
		fmt.Println(key)
		return
	}

	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *out == "" {
		*out = *in + ".enc"
	}

	// A missing dotenv file is fine; the key may come from the environment.
	_ = godotenv.Load(*envFile)
	key := os.Getenv(config.EnvEncryptionKey)

	weights, err := os.ReadFile(*in)
	if err != nil {
		fail(err)
	}
	blob, err := model.Seal(weights, key)
	if err != nil {
		fail(err)
	}
	if err := os.WriteFile(*out, blob, 0o644); err != nil {
		fail(err)
	}

	color.Green("sealed %s -> %s (%d bytes)", *in, *out, len(blob))
}

func fail(err error) {
	color.New(color.FgRed).Fprintf(os.Stderr, "modelseal: %v\n", err)
	os.Exit(1)
}
