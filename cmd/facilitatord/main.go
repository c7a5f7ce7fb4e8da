// Command facilitatord runs a reference x402 facilitator over HTTP: it
// verifies and settles payments for the EVM and Solana exact-scheme
// reference handlers behind a /verify, /settle, /supported, /health
// API, and advertises the discovery extension.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	x402 "github.com/x402core/x402"
	"github.com/x402core/x402/extensions/discovery"
	"github.com/x402core/x402/mechanisms/evm"
	evmsigner "github.com/x402core/x402/signers/evm"
	"github.com/x402core/x402/mechanisms/svm"
	svmsigner "github.com/x402core/x402/signers/svm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using process environment")
	}

	port := getenv("PORT", "4022")
	evmRPCURL := getenv("EVM_RPC_URL", "https://sepolia.base.org")
	svmRPCURL := getenv("SVM_RPC_URL", "https://api.devnet.solana.com")

	facilitator := x402.NewFacilitator(x402.WithFacilitatorLogger(log.Logger))
	facilitator.RegisterExtension(discovery.DISCOVERY)

	ctx := context.Background()
	var registeredChains []string

	if privateKey := os.Getenv("EVM_PRIVATE_KEY"); privateKey != "" {
		signer, err := evmsigner.NewFacilitatorSignerFromPrivateKey(ctx, privateKey, evmRPCURL)
		if err != nil {
			log.Fatal().Err(err).Msg("facilitatord: failed to create evm signer")
		}
		evm.Register(nil, facilitator, nil, nil, signer, nil)
		registeredChains = append(registeredChains, fmt.Sprintf("evm (%s)", signer.Address()))
	}

	if privateKey := os.Getenv("SVM_PRIVATE_KEY"); privateKey != "" {
		submitter := svmsigner.NewFacilitatorSubmitter(svmRPCURL)
		svm.Register(nil, facilitator, nil, nil, submitter, nil)
		registeredChains = append(registeredChains, "svm")
	}

	if len(registeredChains) == 0 {
		log.Fatal().Msg("facilitatord: set EVM_PRIVATE_KEY and/or SVM_PRIVATE_KEY to enable at least one chain")
	}

	facilitator.OnBeforeVerify(func(ctx x402.FacilitatorVerifyContext) (*x402.FacilitatorBeforeHookResult, error) {
		log.Debug().Str("scheme", string(ctx.Requirement.Scheme)).Str("network", string(ctx.Requirement.Network)).Msg("verify: starting")
		return nil, nil
	})
	facilitator.OnAfterSettle(func(ctx x402.FacilitatorSettleResultContext) error {
		if ctx.Result.Success {
			log.Info().Str("transaction", ctx.Result.Transaction).Str("network", string(ctx.Result.Network)).Msg("settle: succeeded")
		} else {
			log.Warn().Str("reason", string(ctx.Result.ErrorReason)).Msg("settle: failed")
		}
		return nil
	})

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "chains": registeredChains})
	})

	r.GET("/supported", func(c *gin.Context) {
		c.JSON(http.StatusOK, facilitator.Supported())
	})

	r.POST("/verify", func(c *gin.Context) {
		var req facilitatorRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		result, err := facilitator.Verify(reqCtx, req.PaymentPayload, req.PaymentRequirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	r.POST("/settle", func(c *gin.Context) {
		var req facilitatorRequest
		if err := c.BindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		reqCtx, cancel := context.WithTimeout(c.Request.Context(), 60*time.Second)
		defer cancel()
		result, err := facilitator.Settle(reqCtx, req.PaymentPayload, req.PaymentRequirements)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, result)
	})

	log.Info().Str("port", port).Strs("chains", registeredChains).Msg("facilitatord: listening")
	if err := r.Run(":" + port); err != nil {
		log.Fatal().Err(err).Msg("facilitatord: server exited")
	}
}

type facilitatorRequest struct {
	X402Version         int                      `json:"x402Version"`
	PaymentPayload      x402.PaymentPayload      `json:"paymentPayload"`
	PaymentRequirements x402.PaymentRequirements `json:"paymentRequirements"`
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
