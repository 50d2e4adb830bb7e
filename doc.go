// Package attrmail provides a Go client SDK for attribute-based email
// encryption: mail is sealed against attribute policies and recipients
// decrypt by disclosing the required attributes to a trusted key server.
//
// Sealing uses ciphertext-policy attribute-based encryption to wrap a
// per-message session key for every recipient, with the payload encrypted
// under AES-256-GCM. Decryption keys are released per timestamp epoch
// after an interactive disclosure session, and the resulting credentials
// are cached so routine reads need no user interaction.
//
// Basic usage:
//
//	client, err := attrmail.New("alice@example.com", tokenFunc,
//	    attrmail.WithStorageDir(cacheDir),
//	    attrmail.WithSessionStateFunc(showQRDialog),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Seal and send a compose item
//	err = client.Encrypt(ctx, &attrmail.MailItem{
//	    From:     "alice@example.com",
//	    To:       []string{"bob@example.org"},
//	    Subject:  "Hi",
//	    HTMLBody: "<p>hello</p>",
//	})
//
//	// Decrypt a received message in place
//	result, err := client.Decrypt(ctx, messageID)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("From:", result.Mail.From)
package attrmail
