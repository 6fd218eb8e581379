/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
// @title           AI Service API
// @version         1.0
// @description     AI content generation, translation, enhancement and automation service
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.email  support@example.com

// @license.name  Apache 2.0
// @license.url   http://www.apache.org/licenses/LICENSE-2.0.html

// @host      localhost:8010
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the JWT issued by the auth service
package main

import "github.com/mission-engadi/ai-service/cmd"

func main() {
	cmd.Execute()
}
