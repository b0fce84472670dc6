package main

import (
	"fmt"
	"geekedapi/routes"
	"io"
	"log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const Port = 2323

func main() {
	e := echo.New()

	// Debug Setting
	e.Logger.SetOutput(io.Discard)
	e.Debug = false

	// Middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"*"},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))

	// Solver
	e.POST("/createTask", routes.CreateTaskRoute)
	e.POST("/getTask", routes.GetTaskRoute)
	e.GET("/getRiskTypes", routes.GetRiskTypes)

	// Start server
	fmt.Printf("Server is running on PORT: %d\n", Port)
	if err := e.Start(fmt.Sprintf(":%d", Port)); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
