// Package bot — «склейка» вокруг tracker, presence, stats и chat,
// реализующая прикладного бота для доты. Бот:
//   - гоняет два цикла обновления кэша (полный и инкрементальный);
//   - следит за присутствием игроков в Steam и пишет в чат про
//     запуск/выход из игр;
//   - объявляет новые матчи игроков ростера со сводкой из кэша;
//   - шлёт ежедневный отчёт наигранного и цитату дня;
//   - обрабатывает команды (!help, !track*, !last, !worst, !played,
//     !quote, !tq, !update и др.);
//   - ведёт ростер (conf/players.json) и цитатник (conf/quotes.json).
//
// Жизненный цикл:
//   - Создать бота через New(cfg).
//   - Запустить Serve(ctx): поднимет дерево сервисов (suture) и
//     заблокируется до отмены контекста.
//
// Пример:
//
//	cfg, _ := config.Load("conf/config.yaml")
//	b, err := bot.New(cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	_ = b.Serve(ctx)
//
// Команды в чате изменяют рантайм-состояние и сразу сохраняют файлы;
// !save принудительно перезаписывает ростер и цитатник ещё раз.
// Без steam-ключа присутствие выключено, без chat.gateway_url бот
// работает «молча»: циклы и кэш живут, команды недоступны.
package bot
